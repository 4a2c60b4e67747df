// Package authn prepares SAML authentication requests for the HTTP
// redirect binding.
package authn

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
)

// ErrEmptyRequest is returned for an empty request document.
var ErrEmptyRequest = errors.New("empty authentication request")

// EncodeRequest deflates xml (raw, without zlib framing), Base64-encodes
// it and URL-encodes the result, giving the SAMLRequest query value.
func EncodeRequest(xml []byte) (string, error) {
	if len(bytes.TrimSpace(xml)) == 0 {
		return "", ErrEmptyRequest
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return "", fmt.Errorf("create deflater: %w", err)
	}
	if _, err := w.Write(xml); err != nil {
		return "", fmt.Errorf("deflate request: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("deflate request: %w", err)
	}

	return url.QueryEscape(base64.StdEncoding.EncodeToString(buf.Bytes())), nil
}

// DecodeRequest reverses EncodeRequest.
func DecodeRequest(encoded string) ([]byte, error) {
	b64, err := url.QueryUnescape(encoded)
	if err != nil {
		return nil, fmt.Errorf("url-decode request: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("base64-decode request: %w", err)
	}

	r := flate.NewReader(bytes.NewReader(raw))
	defer func() { _ = r.Close() }()
	xml, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("inflate request: %w", err)
	}
	return xml, nil
}

// RedirectURL appends the encoded request to an identity provider's
// single sign-on URL.
func RedirectURL(ssoURL, encoded string) (string, error) {
	u, err := url.Parse(ssoURL)
	if err != nil {
		return "", fmt.Errorf("parse sso url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("sso url %q must be absolute", ssoURL)
	}

	sep := "?"
	if u.RawQuery != "" {
		sep = "&"
	}
	return ssoURL + sep + "SAMLRequest=" + encoded, nil
}
