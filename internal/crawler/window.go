package crawler

// Window shapes oversized markup before it is handed to the fingerprinting
// engine. The text is cut into rows of maxCols runes; when there are more
// than maxRows rows only the first maxRows/2 and the last maxRows-maxRows/2
// rows are kept. Rows are joined back without separators, so a string that
// already fits the window is returned unchanged and Window(Window(s)) equals
// Window(s).
//
// A zero or negative bound disables windowing.
func Window(markup string, maxCols, maxRows int) string {
	if maxCols <= 0 || maxRows <= 0 {
		return markup
	}

	runes := []rune(markup)
	if len(runes) <= maxCols*maxRows {
		return markup
	}

	rowCount := (len(runes) + maxCols - 1) / maxCols
	head := maxRows / 2
	tail := maxRows - head

	out := make([]rune, 0, maxCols*maxRows)
	out = append(out, runes[:head*maxCols]...)
	out = append(out, runes[(rowCount-tail)*maxCols:]...)
	return string(out)
}
