package widget

// EmptyState is rendered in place of the map while no API key is set.
type EmptyState struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	LinkText string `json:"linkText"`
	LinkURL  string `json:"linkUrl" format:"uri"`
}

// DefaultEmptyState points the editor at the Google key documentation.
var DefaultEmptyState = EmptyState{
	Title:    "How to get started",
	Body:     "Add a Google Maps API key in the block settings to enable the Map.",
	LinkText: "Find more information on Google Maps Platform",
	LinkURL:  "https://developers.google.com/maps/documentation/javascript/get-api-key",
}
