package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Sternrassler/release-radar/pkg/catalog"
)

// MaxPageSize is the largest page the catalog serves for both listings.
const MaxPageSize = 50

const (
	followingPath = "/v1/me/following"
	releasesPath  = "/v1/artists/%s/albums"
)

type artistObject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type followedResponse struct {
	Artists struct {
		Items   *[]artistObject `json:"items"`
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
		Total int `json:"total"`
	} `json:"artists"`
}

type albumObject struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	ReleaseDate          string            `json:"release_date"`
	ReleaseDatePrecision string            `json:"release_date_precision"`
	Artists              []artistObject    `json:"artists"`
	ExternalURLs         map[string]string `json:"external_urls"`
}

type albumsResponse struct {
	Items *[]albumObject `json:"items"`
	Next  string         `json:"next"`
	Total int            `json:"total"`
}

// ListFollowedCreators returns one page of the creators the authenticated user follows.
func (c *Client) ListFollowedCreators(ctx context.Context, cursor string, limit int) (catalog.Page[catalog.Creator], error) {
	query := url.Values{
		"type":  {"artist"},
		"limit": {strconv.Itoa(clampLimit(limit))},
	}
	if cursor != "" {
		query.Set("after", cursor)
	}

	var body followedResponse
	if err := c.getJSON(ctx, c.resolve(followingPath, query), &body); err != nil {
		return catalog.Page[catalog.Creator]{}, err
	}

	after := body.Artists.Cursors.After
	if body.Artists.Items == nil {
		if after != "" {
			return catalog.Page[catalog.Creator]{}, fmt.Errorf("%w: followed creators page has no items but cursor %q", ErrPaginationProtocol, after)
		}
		return catalog.Page[catalog.Creator]{}, nil
	}

	items := make([]catalog.Creator, 0, len(*body.Artists.Items))
	for i, a := range *body.Artists.Items {
		if a.ID == "" {
			return catalog.Page[catalog.Creator]{}, fmt.Errorf("%w: followed creator %d has no id", ErrPaginationProtocol, i)
		}
		items = append(items, catalog.Creator{ID: a.ID, Name: a.Name})
	}

	return catalog.Page[catalog.Creator]{Items: items, Cursor: after}, nil
}

// ListReleases returns one page of a creator's releases in a single category.
// cursor is empty for the first page, then the opaque next-page URL.
func (c *Client) ListReleases(ctx context.Context, q catalog.ReleaseQuery, cursor string) (catalog.Page[catalog.Release], error) {
	if q.CreatorID == "" {
		return catalog.Page[catalog.Release]{}, fmt.Errorf("release query: creator id is required")
	}
	if !q.Category.Valid() {
		return catalog.Page[catalog.Release]{}, fmt.Errorf("release query: %w: %q", catalog.ErrUnknownCategory, q.Category)
	}

	var (
		u   *url.URL
		err error
	)
	if cursor == "" {
		market := q.Market
		if market == "" {
			market = c.config.Market
		}
		query := url.Values{
			"include_groups": {q.Category.String()},
			"limit":          {strconv.Itoa(clampLimit(q.Limit))},
		}
		if market != "" {
			query.Set("market", market)
		}
		u = c.resolve(fmt.Sprintf(releasesPath, q.CreatorID), query)
	} else {
		u, err = c.nextURL(cursor)
		if err != nil {
			return catalog.Page[catalog.Release]{}, err
		}
	}

	var body albumsResponse
	if err := c.getJSON(ctx, u, &body); err != nil {
		return catalog.Page[catalog.Release]{}, err
	}

	if body.Items == nil {
		if body.Next != "" {
			return catalog.Page[catalog.Release]{}, fmt.Errorf("%w: release page has no items but next %q", ErrPaginationProtocol, body.Next)
		}
		return catalog.Page[catalog.Release]{}, nil
	}

	items := make([]catalog.Release, 0, len(*body.Items))
	for i, a := range *body.Items {
		if a.ID == "" {
			return catalog.Page[catalog.Release]{}, fmt.Errorf("%w: release %d has no id", ErrPaginationProtocol, i)
		}
		creators := make([]string, 0, len(a.Artists))
		for _, artist := range a.Artists {
			creators = append(creators, artist.Name)
		}
		if len(creators) == 0 {
			return catalog.Page[catalog.Release]{}, fmt.Errorf("%w: release %s has no artists", ErrPaginationProtocol, a.ID)
		}
		items = append(items, catalog.Release{
			ID:            a.ID,
			Title:         a.Name,
			ReleaseDate:   a.ReleaseDate,
			DatePrecision: a.ReleaseDatePrecision,
			Creators:      creators,
			Links:         a.ExternalURLs,
			Category:      q.Category,
		})
	}

	return catalog.Page[catalog.Release]{Items: items, Cursor: body.Next}, nil
}

// nextURL validates a next-page cursor. It must be an absolute URL on the base host.
func (c *Client) nextURL(cursor string) (*url.URL, error) {
	u, err := url.Parse(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: unparsable next cursor: %v", ErrPaginationProtocol, err)
	}
	if u.Scheme != c.baseURL.Scheme || u.Host != c.baseURL.Host {
		return nil, fmt.Errorf("%w: next cursor %q is not on %s", ErrPaginationProtocol, cursor, c.baseURL.Host)
	}
	return u, nil
}

func (c *Client) resolve(path string, query url.Values) *url.URL {
	return c.baseURL.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
}

// getJSON performs a GET and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, u *url.URL, out any) error {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	resp, err := c.get(ctx, u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: decode %s: %v", ErrPaginationProtocol, endpointLabel(u.Path), err)
	}
	return nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0 || limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}
