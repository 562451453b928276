package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strconv"

	"github.com/gustweb/gust/errs"
	"github.com/gustweb/gust/httpheader"
)

// materializeBody turns the per-call body arguments into the request body
// and the headers it implies. Exactly one of data, form/files and json may
// be supplied; conflicts are configuration errors reported before any
// exchange activity. The implied content-type and content-length are
// authoritative over caller-supplied values.
func materializeBody(o *requestOpts) ([]byte, *httpheader.Headers, error) {
	supplied := 0
	if o.data != nil {
		supplied++
	}
	if o.form != nil || len(o.files) > 0 {
		supplied++
	}
	if o.jsonSet {
		supplied++
	}
	if supplied > 1 {
		return nil, nil, errs.Newf(errs.KindConfig, "data, form and json arguments are mutually exclusive")
	}

	headers := httpheader.New()

	var body []byte
	switch {
	case o.jsonSet:
		encoded, err := json.Marshal(o.json)
		if err != nil {
			return nil, nil, fmt.Errorf("encoding json body: %w", err)
		}
		body = encoded
		headers.Set("content-type", "application/json")

	case len(o.files) > 0:
		encoded, contentType, err := materializeMultipart(o)
		if err != nil {
			return nil, nil, err
		}
		body = encoded
		headers.Set("content-type", contentType)

	case o.form != nil:
		body = []byte(o.form.Encode())
		headers.Set("content-type", "application/x-www-form-urlencoded")

	case o.data != nil:
		body = o.data
	}

	headers.Set("content-length", strconv.Itoa(len(body)))

	return body, headers, nil
}

// materializeMultipart encodes form fields and attached files as
// multipart/form-data.
func materializeMultipart(o *requestOpts) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for field, values := range o.form {
		for _, value := range values {
			if err := writer.WriteField(field, value); err != nil {
				return nil, "", fmt.Errorf("encoding form field[%s]: %w", field, err)
			}
		}
	}

	for _, file := range o.files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.field, file.filename))
		contentType := file.contentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)

		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("encoding file[%s]: %w", file.filename, err)
		}
		if _, err := part.Write(file.content); err != nil {
			return nil, "", fmt.Errorf("writing file[%s]: %w", file.filename, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("finalizing multipart body: %w", err)
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}
