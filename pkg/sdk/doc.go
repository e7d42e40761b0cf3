// Package fedcat provides a Go client for the fedcat federated catalog API.
//
//	client, _ := fedcat.New("http://catalog:8080", fedcat.WithAPIKey(key))
//	resp, _ := client.Query(ctx, fedcat.QueryRequest{
//	    Text:     "river",
//	    Start:    11,
//	    PageSize: 10,
//	    Sort:     &fedcat.Sort{Field: "modified"},
//	})
//
// Streaming delivers records as the server merges them:
//
//	summary, _ := client.QueryStream(ctx, req, func(r fedcat.Record) error {
//	    fmt.Println(r.Title)
//	    return nil
//	})
package fedcat
