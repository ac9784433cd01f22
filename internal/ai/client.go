package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/offerwire/promofeed/internal/models"
)

// RelevanceResult is the outcome of the relevance classification stage.
type RelevanceResult struct {
	IsRelevant bool   `json:"is_relevant"`
	Confidence int    `json:"confidence"`
	Reason     string `json:"reason"`
}

// CategoryResult is the outcome of the category classification stage.
type CategoryResult struct {
	Category   models.Category `json:"category"`
	Confidence int             `json:"confidence"`
}

// ExtractionResult is the outcome of the field extraction stage: a flat
// field bag plus the parallel per-field confidence map.
type ExtractionResult struct {
	Fields          json.RawMessage `json:"fields"`
	FieldConfidence map[string]int  `json:"field_confidence"`
	Confidence      int             `json:"confidence"`
}

// Client calls a Gemini-style generateContent API for all three pipeline
// stages. Calls are not retried here; a failure degrades to the pipeline's
// manual-entry fallback.
type Client struct {
	client  *resty.Client
	apiKey  string
	model   string
	baseURL string
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewClient builds a capability client with a hard per-call timeout.
func NewClient(apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		client:  resty.New().SetTimeout(timeout),
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://generativelanguage.googleapis.com/v1beta/models",
	}
}

// ClassifyRelevance decides whether a post is on-topic.
func (c *Client) ClassifyRelevance(ctx context.Context, post models.SourcePost) (RelevanceResult, error) {
	const stage = "relevance"
	raw, err := c.generate(ctx, stage, relevancePrompt+"\n\n"+postContent(post))
	if err != nil {
		return RelevanceResult{}, err
	}
	var res RelevanceResult
	if err := decodeResponse(stage, raw, &res); err != nil {
		return RelevanceResult{}, err
	}
	res.Confidence = clampConfidence(res.Confidence)
	return res, nil
}

// ClassifyCategory assigns one of the fixed content categories.
func (c *Client) ClassifyCategory(ctx context.Context, post models.SourcePost) (CategoryResult, error) {
	const stage = "category"
	raw, err := c.generate(ctx, stage, categoryPrompt+"\n\n"+postContent(post))
	if err != nil {
		return CategoryResult{}, err
	}
	var parsed struct {
		Category   string `json:"category"`
		Confidence int    `json:"confidence"`
	}
	if err := decodeResponse(stage, raw, &parsed); err != nil {
		return CategoryResult{}, err
	}
	return CategoryResult{
		Category:   models.ParseCategory(parsed.Category),
		Confidence: clampConfidence(parsed.Confidence),
	}, nil
}

// ExtractFields runs the category-specific extraction contract. The result's
// field bag is validated against the category's typed shape before return.
func (c *Client) ExtractFields(ctx context.Context, post models.SourcePost, cat models.Category) (ExtractionResult, error) {
	const stage = "extraction"
	raw, err := c.generate(ctx, stage, buildExtractionPrompt(cat)+"\n\n"+postContent(post))
	if err != nil {
		return ExtractionResult{}, err
	}
	var res ExtractionResult
	if err := decodeResponse(stage, raw, &res); err != nil {
		return ExtractionResult{}, err
	}
	if _, err := models.DecodeFields(cat, res.Fields); err != nil {
		return ExtractionResult{}, &MalformedResponseError{Stage: stage, Raw: raw, Err: err}
	}
	res.Confidence = clampConfidence(res.Confidence)
	for k, v := range res.FieldConfidence {
		res.FieldConfidence[k] = clampConfidence(v)
	}
	return res, nil
}

func (c *Client) generate(ctx context.Context, stage, prompt string) (string, error) {
	url := fmt.Sprintf("%s/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	req := generateRequest{
		Contents: []content{{
			Parts: []part{{Text: prompt}},
		}},
	}

	var resp generateResponse
	_, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&resp).
		Post(url)

	if err != nil {
		return "", &CapabilityError{Stage: stage, Timeout: isTimeout(err), Err: err}
	}

	if resp.Error != nil {
		return "", &CapabilityError{Stage: stage, Err: errors.New(resp.Error.Message)}
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", &CapabilityError{Stage: stage, Err: errors.New("no content in response")}
	}

	return resp.Candidates[0].Content.Parts[0].Text, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
