package models

// RejectionReason is an editable template staff pick when rejecting.
// Its text is copied onto the request at rejection time.
type RejectionReason struct {
	ID    string `db:"id" json:"id"`
	Title string `db:"title" json:"title"`
	Body  string `db:"body" json:"body"`
}

// Text returns the snapshot stored on rejected requests.
func (r RejectionReason) Text() string {
	if r.Body == "" {
		return r.Title
	}
	if r.Title == "" {
		return r.Body
	}
	return r.Title + ": " + r.Body
}
