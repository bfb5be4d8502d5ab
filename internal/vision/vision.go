// Package vision labels frames with Google Cloud Vision.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"google.golang.org/api/option"
	visionapi "google.golang.org/api/vision/v1"

	"camview/internal/apperr"
	"camview/internal/constants"
	"camview/internal/types"
)

const (
	serviceName    = "vision"
	labelDetection = "LABEL_DETECTION"
)

// Classifier annotates an image with descriptive labels.
type Classifier interface {
	Classify(ctx context.Context, image []byte) ([]types.Label, error)
}

type GoogleClassifier struct {
	svc        *visionapi.Service
	maxResults int64
}

// NewGoogleClassifier builds a client from a service account JSON document,
// or from application default credentials when credentialsJSON is empty.
// Extra options are appended after the credentials.
func NewGoogleClassifier(ctx context.Context, credentialsJSON string, opts ...option.ClientOption) (*GoogleClassifier, error) {
	var all []option.ClientOption
	if credentialsJSON != "" {
		all = append(all, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	all = append(all, opts...)

	svc, err := visionapi.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	return &GoogleClassifier{svc: svc, maxResults: constants.MaxClassifierLabels}, nil
}

func (c *GoogleClassifier) Classify(ctx context.Context, image []byte) ([]types.Label, error) {
	req := &visionapi.BatchAnnotateImagesRequest{
		Requests: []*visionapi.AnnotateImageRequest{{
			Image: &visionapi.Image{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []*visionapi.Feature{{
				Type:       labelDetection,
				MaxResults: c.maxResults,
			}},
		}},
	}

	resp, err := c.svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return nil, apperr.Upstream(serviceName, err)
	}
	if len(resp.Responses) == 0 {
		return []types.Label{}, nil
	}

	r := resp.Responses[0]
	if r.Error != nil && r.Error.Message != "" {
		return nil, apperr.Upstream(serviceName, errors.New(r.Error.Message))
	}

	labels := make([]types.Label, 0, len(r.LabelAnnotations))
	for _, a := range r.LabelAnnotations {
		if a == nil {
			continue
		}
		labels = append(labels, types.Label{Description: a.Description, Score: a.Score})
	}
	return labels, nil
}

// Unavailable stands in when no client could be built. Every call fails.
type Unavailable struct {
	Err error
}

func (u Unavailable) Classify(context.Context, []byte) ([]types.Label, error) {
	err := u.Err
	if err == nil {
		err = errors.New("classifier not configured")
	}
	return nil, apperr.Upstream(serviceName, err)
}
