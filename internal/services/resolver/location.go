package resolver

import (
	"net/url"
	"strings"
)

const (
	paramTransactionHashes = "transactionHashes"
	paramErrorCode         = "errorCode"
	paramErrorMessage      = "errorMessage"
)

// Location is a navigation entry the wallet redirected back to.
type Location struct {
	Path  string
	Query url.Values
}

func ParseLocation(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, err
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return Location{Path: path, Query: u.Query()}, nil
}

// LastHash returns the last hash of the comma separated transactionHashes
// parameter. A batch reports its swap last.
func (l Location) LastHash() string {
	raw := l.Query.Get(paramTransactionHashes)
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		if h := strings.TrimSpace(parts[i]); h != "" {
			return h
		}
	}
	return ""
}

func (l Location) ErrorCode() string {
	return l.Query.Get(paramErrorCode)
}

// Stripped renders the location without the wallet callback parameters.
func (l Location) Stripped() string {
	q := url.Values{}
	for k, v := range l.Query {
		q[k] = v
	}
	q.Del(paramTransactionHashes)
	q.Del(paramErrorCode)
	q.Del(paramErrorMessage)
	if len(q) == 0 {
		return l.Path
	}
	return l.Path + "?" + q.Encode()
}
