package platform

import (
	"fmt"
	"net/http"

	"github.com/ucext/citizenconnect/internal/db/models"
)

// Endpoints are the API base URLs of the supported platforms
type Endpoints struct {
	GraphAPIURL    string
	LinkedInAPIURL string
	XAPIURL        string
}

// Registry resolves the adapter for a platform
type Registry struct {
	Graph    *Client
	LinkedIn *Client
	X        *Client

	publishers map[models.Platform]MediaPublisher
	posters    map[models.Platform]TextPoster
}

// NewRegistry wires the adapters of every platform. httpClient may be nil.
func NewRegistry(endpoints Endpoints, httpClient *http.Client) *Registry {
	graph := NewClient(endpoints.GraphAPIURL, httpClient)
	linkedin := NewClient(endpoints.LinkedInAPIURL, httpClient)
	x := NewClient(endpoints.XAPIURL, httpClient)

	return &Registry{
		Graph:    graph,
		LinkedIn: linkedin,
		X:        x,
		publishers: map[models.Platform]MediaPublisher{
			models.PlatformInstagram: NewInstagramPublisher(graph),
			models.PlatformFacebook:  NewFacebookPublisher(graph),
		},
		posters: map[models.Platform]TextPoster{
			models.PlatformFacebook: NewFacebookPoster(graph),
			models.PlatformLinkedIn: NewLinkedInPoster(linkedin),
			models.PlatformX:        NewXPoster(x),
		},
	}
}

// Publisher returns the media publisher of a platform
func (r *Registry) Publisher(p models.Platform) (MediaPublisher, error) {
	pub, ok := r.publishers[p]
	if !ok {
		return nil, fmt.Errorf("platform %q does not support media publishing", p)
	}
	return pub, nil
}

// Poster returns the text poster of a platform
func (r *Registry) Poster(p models.Platform) (TextPoster, error) {
	poster, ok := r.posters[p]
	if !ok {
		return nil, fmt.Errorf("platform %q does not support text posts", p)
	}
	return poster, nil
}

// SetPublisher overrides the publisher of a platform
func (r *Registry) SetPublisher(p models.Platform, pub MediaPublisher) {
	r.publishers[p] = pub
}
