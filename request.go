package socketio

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/socketio/socket.io-sub001/adaptor"
)

// Request is a wrapped HTTP request object so that we expose only the things
// that are necessary. It is the request that opened the connection.
type Request struct {
	r *http.Request

	Method     string
	URL        *url.URL
	Header     http.Header
	Host       string
	RemoteAddr string
	RequestURI string
}

func (req *Request) Cookie(name string) (*http.Cookie, error) { return req.r.Cookie(name) }
func (req *Request) Cookies() []*http.Cookie                  { return req.r.Cookies() }
func (req *Request) Context() context.Context                 { return req.r.Context() }
func (req *Request) Referer() string                          { return req.r.Referer() }
func (req *Request) UserAgent() string                        { return req.r.UserAgent() }

func sioRequest(r *http.Request) *Request {
	if r == nil {
		r = &http.Request{URL: &url.URL{}, Header: http.Header{}}
	}
	return &Request{
		r:          r,
		Method:     r.Method,
		URL:        r.URL,
		Header:     r.Header,
		Host:       r.Host,
		RemoteAddr: r.RemoteAddr,
		RequestURI: r.RequestURI,
	}
}

// handshake records the connection request of a socket.
func (req *Request) handshake(auth map[string]interface{}) adaptor.Handshake {
	now := time.Now()
	if auth == nil {
		auth = map[string]interface{}{}
	}

	return adaptor.Handshake{
		Headers: req.Header.Clone(),
		Time:    now.Format(time.RFC1123),
		Address: req.RemoteAddr,
		XDomain: req.Header.Get("Origin") != "",
		Secure:  req.r.TLS != nil,
		Issued:  now.UnixMilli(),
		URL:     req.RequestURI,
		Query:   req.URL.Query(),
		Auth:    auth,
	}
}
