// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Message is one role-tagged message in an OpenAI-compatible chat request.
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart is a text or image part of a multi-modal message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries an image reference, usually a base64 data URL.
type ImageURL struct {
	URL string `json:"url"`
}
