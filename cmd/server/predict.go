package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// prediction is the /predict response body
type prediction struct {
	Prediction string `json:"prediction"`
	Confidence string `json:"confidence"`
	Error      string `json:"error"`
}

func newPredictCommand() *cobra.Command {
	var serverURL string
	var multipartForm bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "predict FILE",
		Short: "Send an audio file to a running server and print the prediction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			p, err := requestPrediction(ctx, http.DefaultClient, serverURL, args[0], multipartForm)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Prediction: %s (confidence %s)\n", p.Prediction, p.Confidence)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:5000/predict", "Prediction endpoint URL")
	cmd.Flags().BoolVar(&multipartForm, "multipart", false, "Send the file as multipart field 'audio' instead of a raw body")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	return cmd
}

// requestPrediction posts the file at path to serverURL
func requestPrediction(ctx context.Context, client *http.Client, serverURL, path string, multipartForm bool) (*prediction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	body := bytes.NewBuffer(data)
	contentType := "application/octet-stream"
	if multipartForm {
		body = &bytes.Buffer{}
		mw := multipart.NewWriter(body)
		fw, err := mw.CreateFormFile("audio", filepath.Base(path))
		if err != nil {
			return nil, fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := fw.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write audio data: %w", err)
		}
		if err := mw.Close(); err != nil {
			return nil, fmt.Errorf("failed to close multipart writer: %w", err)
		}
		contentType = mw.FormDataContentType()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not reach server at %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var p prediction
	if err := json.Unmarshal(respBody, &p); err != nil {
		return nil, fmt.Errorf("HTTP %d: unexpected response %q", resp.StatusCode, respBody)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, p.Error)
	}
	return &p, nil
}
