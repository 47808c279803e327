// Package docqa is a Go client for the docqa HTTP API.
//
//	client, _ := docqa.New("http://localhost:8080", docqa.WithAdminKey(os.Getenv("DOCQA_ADMIN_KEY")))
//	if _, err := client.Rebuild(ctx); err != nil {
//	    return err
//	}
//	ans, err := client.Ask(ctx, "How much helium was produced in 2023?")
//	if errors.Is(err, docqa.ErrNotReady) {
//	    // index not built yet
//	}
//	fmt.Println(ans.Text)
//
// Failed /api calls return an *APIError whose kind also matches one of the
// sentinel errors via errors.Is.
package docqa
