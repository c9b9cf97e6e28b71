package uploads

import (
	"fmt"
	"io"

	"github.com/dutchcoders/go-clamd"
)

// Scanner inspects an upload for malware. A nil error means clean.
type Scanner interface {
	Scan(r io.Reader) error
}

// ClamdScanner streams files to a clamd daemon.
type ClamdScanner struct {
	client *clamd.Clamd
}

// NewClamdScanner returns a scanner for the daemon at addr, e.g. "tcp://clamav:3310".
func NewClamdScanner(addr string) *ClamdScanner {
	return &ClamdScanner{client: clamd.NewClamd(addr)}
}

// Scan 把文件流发送给 clamd，发现病毒时返回 ErrMalicious。
func (s *ClamdScanner) Scan(r io.Reader) error {
	abort := make(chan bool)
	defer close(abort)

	results, err := s.client.ScanStream(r, abort)
	if err != nil {
		return fmt.Errorf("clamd scan: %w", err)
	}

	var verdict error
	for result := range results {
		switch result.Status {
		case clamd.RES_OK:
		case clamd.RES_FOUND:
			verdict = ErrMalicious
		default:
			if verdict == nil {
				verdict = fmt.Errorf("clamd scan: %s %s", result.Status, result.Description)
			}
		}
	}
	return verdict
}
