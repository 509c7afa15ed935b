package hubspot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/router-for-me/HubConnect/internal/config"
	"github.com/router-for-me/HubConnect/internal/util"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

const pageLimit = 100

// IntegrationItem is the provider-neutral metadata record returned for each CRM object.
type IntegrationItem struct {
	ID               string   `json:"id"`
	Type             string   `json:"type"`
	Directory        bool     `json:"directory"`
	ParentPathOrName *string  `json:"parent_path_or_name"`
	ParentID         *string  `json:"parent_id"`
	Name             *string  `json:"name"`
	CreationTime     *string  `json:"creation_time"`
	LastModifiedTime *string  `json:"last_modified_time"`
	URL              *string  `json:"url"`
	Children         []string `json:"children"`
	MimeType         *string  `json:"mime_type"`
	Delta            *string  `json:"delta"`
	DriveID          *string  `json:"drive_id"`
	Visibility       *bool    `json:"visibility"`
}

// objectKinds lists the CRM objects loaded, in output order.
var objectKinds = []struct {
	path     string
	itemType string
}{
	{"contacts", "Contact"},
	{"companies", "Company"},
	{"deals", "Deal"},
}

// Loader fetches CRM objects from the HubSpot API.
type Loader struct {
	baseURL    string
	httpClient *http.Client
}

// NewLoader creates a loader for the configured API base URL.
func NewLoader(cfg *config.Config) *Loader {
	return &Loader{
		baseURL:    strings.TrimRight(cfg.HubSpot.APIBaseURL, "/"),
		httpClient: util.SetProxy(cfg.ProxyURL, &http.Client{Timeout: 20 * time.Second}),
	}
}

// Items loads contacts, companies and deals concurrently and returns them in that order.
func (l *Loader) Items(ctx context.Context, accessToken string) ([]IntegrationItem, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("hubspot: access token is required")
	}
	results := make([][]IntegrationItem, len(objectKinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range objectKinds {
		g.Go(func() error {
			items, err := l.fetchPaginated(gctx, accessToken, kind.path, kind.itemType)
			if err != nil {
				return err
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var all []IntegrationItem
	for _, items := range results {
		all = append(all, items...)
	}
	return all, nil
}

// fetchPaginated walks the cursor for one object type. A non-200 page ends the
// walk and keeps what was gathered so far; only transport errors fail the load.
func (l *Loader) fetchPaginated(ctx context.Context, accessToken, objectPath, itemType string) ([]IntegrationItem, error) {
	var items []IntegrationItem
	after := ""
	for {
		params := url.Values{"limit": {fmt.Sprint(pageLimit)}}
		if after != "" {
			params.Set("after", after)
		}
		endpoint := fmt.Sprintf("%s/crm/v3/objects/%s?%s", l.baseURL, objectPath, params.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("hubspot: build %s request: %w", objectPath, err)
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Accept", "application/json")

		resp, err := l.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("hubspot: fetch %s: %w", objectPath, err)
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("hubspot: read %s page: %w", objectPath, err)
		}
		if resp.StatusCode != http.StatusOK {
			log.Warnf("hubspot: %s page returned status %d, stopping", objectPath, resp.StatusCode)
			return items, nil
		}

		gjson.GetBytes(body, "results").ForEach(func(_, record gjson.Result) bool {
			items = append(items, ItemFromRecord(record, itemType))
			return true
		})

		after = gjson.GetBytes(body, "paging.next.after").String()
		if after == "" {
			return items, nil
		}
	}
}

// ItemFromRecord maps one HubSpot CRM record to an IntegrationItem.
func ItemFromRecord(record gjson.Result, itemType string) IntegrationItem {
	props := record.Get("properties")
	if !props.IsObject() {
		props = gjson.Result{}
	}
	prop := func(name string) string { return strings.TrimSpace(props.Get(name).String()) }

	var name string
	switch itemType {
	case "Contact":
		name = strings.TrimSpace(prop("firstname") + " " + prop("lastname"))
		if name == "" {
			name = prop("email")
		}
	case "Company":
		name = prop("name")
		if name == "" {
			name = prop("domain")
		}
	case "Deal":
		name = prop("dealname")
	default:
		name = prop("name")
		if name == "" {
			name = record.Get("id").String()
		}
	}

	id := record.Get("id").String()
	return IntegrationItem{
		ID:               fmt.Sprintf("%s_%s", id, itemType),
		Type:             itemType,
		Name:             optionalString(name),
		CreationTime:     optionalString(record.Get("createdAt").String()),
		LastModifiedTime: optionalString(record.Get("updatedAt").String()),
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// AccessToken extracts access_token from the credentials string produced by the
// connect widget. It accepts either a JSON object or a JSON string wrapping one.
func AccessToken(credentials string) string {
	raw := strings.TrimSpace(credentials)
	parsed := gjson.Parse(raw)
	if parsed.Type == gjson.String {
		parsed = gjson.Parse(parsed.String())
	}
	return strings.TrimSpace(parsed.Get("access_token").String())
}
