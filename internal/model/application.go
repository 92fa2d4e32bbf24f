package model

// Category is a technology category such as "CMS" or "Web servers".
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// DetectedApplication is a technology found on the crawled site.
// Applications are unique by Name within a Result; the first detection
// of a name is kept and later detections never overwrite it.
type DetectedApplication struct {
	// Name is the technology name and the uniqueness key.
	Name string `json:"name"`

	// Confidence is the summed pattern confidence, capped at 100.
	Confidence int `json:"confidence"`

	// Version is the resolved version. Empty means unknown.
	Version string `json:"version,omitempty"`

	// Icon is the icon file name from the fingerprint database.
	Icon string `json:"icon,omitempty"`

	// Website is the technology's home page.
	Website string `json:"website,omitempty"`

	// Categories are the resolved categories in database order.
	Categories []Category `json:"categories"`
}

// Detection is one entry produced by the fingerprinting engine for a page.
// Category names are resolved later, when the detection is upserted into
// the crawl result.
type Detection struct {
	Name        string
	Confidence  int
	Version     string
	CategoryIDs []int
	Icon        string
	Website     string
}

// Meta is page metadata reported alongside detections.
type Meta struct {
	// Language is the document language taken from <html lang>.
	Language string `json:"language,omitempty"`
}

// DetectedFunc receives the detections of one analyzed page together with
// the page metadata.
type DetectedFunc func(detections []Detection, meta Meta)
