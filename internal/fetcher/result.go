package fetcher

// Result is a fetched payload. Body is already decoded from any transport
// Content-Encoding; the header values are reported as received.
type Result struct {
	Body            []byte
	ContentType     string
	ContentEncoding string
	FinalURL        string
}
