// Package client provides programmatic access to a running fable API.
//
// The entry point is NewClient with the service's base URL; every
// method is one API call with a bounded timeout:
//
//	c := client.NewClient("http://localhost:8000")
//
//	f, _ := os.Open("segment_001.mp3")
//	defer f.Close()
//	ack, err := c.SubmitTask(client.SubmitOptions{
//		SourceLanguage:  "en",
//		TargetLanguages: []string{"ja"},
//		StoryName:       "midnight-garden",
//		Files:           []client.FileUpload{{Name: "segment_001.mp3", Content: f}},
//	})
//	if err != nil { ... }
//
//	status, err := c.Task(ack.TaskID)
//	packed, err := c.Results(ack.TaskID)
//
// Failures carry the service's error envelope:
//
//	apiErr := new(client.APIError)
//	if errors.As(err, &apiErr) {
//		fmt.Println(apiErr.Status, apiErr.Detail)
//	}
//
// The CLI task commands are thin wrappers over this package.
package client
