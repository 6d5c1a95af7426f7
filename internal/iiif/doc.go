// Package iiif parses and validates the parameters of an IIIF Image API 2.0
// request.
//
// A request path has the shape
//
//	{identifier}/{region}/{size}/{rotation}/{quality}.{format}
//
// Each segment decodes into a typed directive (Region, Size, Rotation,
// Quality, Format). Parse functions only check grammar; the Validate methods
// check ranges and mutual exclusion. ParseRequest, ParsePath and ParseURI do
// both, so a Request they return is always valid.
//
// Failures are *ParamError values that unwrap to one of ErrRegion, ErrSize,
// ErrRotation, ErrQuality, ErrFormat or ErrURI.
package iiif
