// Package youtube lists playlist entries through the YouTube Data API v3.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"loopdeck/internal/services"
)

// MaxPageSize is the API's maximum playlistItems page.
const MaxPageSize = 50

// Video is one playlist entry joined with its video details.
type Video struct {
	ID              string
	Title           string
	Channel         string
	DurationSeconds float64
	// License is "youtube" or "creativeCommon".
	License  string
	Position int
}

// Page is one page of playlist entries in playlist order.
type Page struct {
	Videos        []Video
	NextPageToken string
}

// Client wraps the generated Data API service.
type Client struct {
	svc *yt.Service
}

// New builds a client. An API key or a service account credentials file must
// be supplied unless opts carry their own authentication.
func New(ctx context.Context, apiKey, credentialsFile string, opts ...option.ClientOption) (*Client, error) {
	switch {
	case strings.TrimSpace(apiKey) != "":
		opts = append(opts, option.WithAPIKey(apiKey))
	case strings.TrimSpace(credentialsFile) != "":
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "youtube", "init client", "", err)
	}
	return &Client{svc: svc}, nil
}

// PlaylistPage returns one page of the playlist. Entries whose video is
// private or deleted are skipped since videos.list does not return them.
func (c *Client) PlaylistPage(ctx context.Context, playlistID, pageToken string, pageSize int) (Page, error) {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	call := c.svc.PlaylistItems.List([]string{"snippet", "contentDetails"}).
		PlaylistId(playlistID).
		MaxResults(int64(pageSize)).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return Page{}, classify("list playlist items", playlistID, err)
	}

	ids := make([]string, 0, len(resp.Items))
	positions := make(map[string]int, len(resp.Items))
	for _, item := range resp.Items {
		if item.ContentDetails == nil || item.ContentDetails.VideoId == "" {
			continue
		}
		id := item.ContentDetails.VideoId
		ids = append(ids, id)
		if item.Snippet != nil {
			positions[id] = int(item.Snippet.Position)
		}
	}
	page := Page{NextPageToken: resp.NextPageToken}
	if len(ids) == 0 {
		return page, nil
	}

	details, err := c.svc.Videos.List([]string{"snippet", "contentDetails", "status"}).
		Id(ids...).
		MaxResults(int64(len(ids))).
		Context(ctx).
		Do()
	if err != nil {
		return Page{}, classify("list videos", playlistID, err)
	}
	byID := make(map[string]*yt.Video, len(details.Items))
	for _, v := range details.Items {
		byID[v.Id] = v
	}

	for _, id := range ids {
		v, ok := byID[id]
		if !ok {
			continue
		}
		video := Video{ID: id, Position: positions[id]}
		if v.Snippet != nil {
			video.Title = v.Snippet.Title
			video.Channel = v.Snippet.ChannelTitle
		}
		if v.ContentDetails != nil {
			seconds, err := ParseDuration(v.ContentDetails.Duration)
			if err != nil {
				return Page{}, services.Wrap(services.ErrValidation, "youtube", "parse duration", id, err)
			}
			video.DurationSeconds = seconds
		}
		if v.Status != nil {
			video.License = v.Status.License
		}
		page.Videos = append(page.Videos, video)
	}
	return page, nil
}

func classify(op, playlistID string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return services.Wrap(services.ErrNotFound, "youtube", op, fmt.Sprintf("playlist %s", playlistID), err)
	}
	return services.Wrap(services.ErrFetch, "youtube", op, fmt.Sprintf("playlist %s", playlistID), err)
}
