package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/turtacn/SMARTSexplore/pkg/errors"
	"github.com/turtacn/SMARTSexplore/pkg/types/graph"
)

// UploadMolecules uploads a molecule file as filename and returns the
// matches of the new set. The server rejects extensions it does not accept.
func (c *Client) UploadMolecules(ctx context.Context, filename string, r io.Reader) (*graph.MatchList, error) {
	if filename == "" {
		return nil, errors.New(errors.ErrCodeValidation, "filename is required")
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "failed to read molecule file")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}
	body := buf.Bytes()

	data, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/molecules/upload",
		contentType: mw.FormDataContentType(),
		body:        func() (io.Reader, error) { return bytes.NewReader(body), nil },
	})
	if err != nil {
		return nil, err
	}
	var ml graph.MatchList
	if err := decode(data, &ml); err != nil {
		return nil, err
	}
	return &ml, nil
}

// Matches lists the SMARTS matches of one molecule set.
func (c *Client) Matches(ctx context.Context, setID int64) (*graph.MatchList, error) {
	var ml graph.MatchList
	if err := c.getJSON(ctx, fmt.Sprintf("/molecules/matches/%d", setID), &ml); err != nil {
		return nil, err
	}
	return &ml, nil
}

// MoleculeImage downloads the SVG of one molecule of a set.
func (c *Client) MoleculeImage(ctx context.Context, setID, moleculeID int64) ([]byte, error) {
	return c.svg(ctx, fmt.Sprintf("/molecules/images/%d/%d", setID, moleculeID))
}
