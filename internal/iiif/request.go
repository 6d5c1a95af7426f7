package iiif

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Request is a fully parsed and validated image request.
type Request struct {
	Identifier string
	Region     Region
	Size       Size
	Rotation   Rotation
	Quality    Quality
	Format     Format
}

// ParseRequest parses and validates every component. The first failing
// component determines the returned error.
func ParseRequest(identifier, region, size, rotation, quality, format string) (Request, error) {
	if identifier == "" {
		return Request{}, NewError(ErrURI, identifier, "identifier is required")
	}

	var (
		req = Request{Identifier: identifier}
		err error
	)
	if req.Region, err = ParseRegion(region); err != nil {
		return Request{}, err
	}
	if req.Size, err = ParseSize(size); err != nil {
		return Request{}, err
	}
	if req.Rotation, err = ParseRotation(rotation); err != nil {
		return Request{}, err
	}
	if req.Quality, err = ParseQuality(quality); err != nil {
		return Request{}, err
	}
	if req.Format, err = ParseFormat(format); err != nil {
		return Request{}, err
	}

	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// ParseURI parses an absolute IIIF image URI of the form
// {scheme}://{host}/{prefix}/{identifier}/{region}/{size}/{rotation}/{quality}.{format}.
// The prefix may span any number of segments, including none.
func ParseURI(uri string) (Request, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Request{}, NewError(ErrURI, uri, err.Error())
	}
	if u.Scheme == "" || u.Host == "" {
		return Request{}, NewError(ErrURI, uri, "scheme and host are required")
	}

	req, err := ParsePath(u.EscapedPath())
	if err != nil {
		var perr *ParamError
		if errors.As(err, &perr) && errors.Is(perr.Kind, ErrURI) {
			return Request{}, NewError(ErrURI, uri, perr.Reason)
		}
		return Request{}, err
	}
	return req, nil
}

// ParsePath parses the five trailing segments of an escaped URI path.
// Each segment is percent-decoded exactly once.
func ParsePath(path string) (Request, error) {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segments) < 5 {
		return Request{}, NewError(ErrURI, path, "expected {identifier}/{region}/{size}/{rotation}/{quality}.{format}")
	}
	segments = segments[len(segments)-5:]

	decoded := make([]string, len(segments))
	for i, seg := range segments {
		if seg == "" {
			return Request{}, NewError(ErrURI, path, "empty path segment")
		}
		s, err := url.PathUnescape(seg)
		if err != nil {
			return Request{}, NewError(ErrURI, path, fmt.Sprintf("segment %q: %v", seg, err))
		}
		decoded[i] = s
	}

	dot := strings.LastIndexByte(decoded[4], '.')
	if dot < 0 {
		return Request{}, NewError(ErrURI, path, "last segment must be {quality}.{format}")
	}

	return ParseRequest(decoded[0], decoded[1], decoded[2], decoded[3], decoded[4][:dot], decoded[4][dot+1:])
}

// Validate runs every directive validator in path order.
func (r Request) Validate() error {
	if r.Identifier == "" {
		return NewError(ErrURI, r.Identifier, "identifier is required")
	}
	if err := r.Region.Validate(); err != nil {
		return err
	}
	if err := r.Size.Validate(); err != nil {
		return err
	}
	if err := r.Rotation.Validate(); err != nil {
		return err
	}
	if err := r.Quality.Validate(); err != nil {
		return err
	}
	return r.Format.Validate()
}

// Path renders the canonical escaped request path without a prefix.
func (r Request) Path() string {
	return strings.Join([]string{
		url.PathEscape(r.Identifier),
		r.Region.String(),
		r.Size.String(),
		r.Rotation.String(),
		r.Quality.String() + "." + r.Format.String(),
	}, "/")
}

func (r Request) String() string {
	return r.Path()
}
