package dingtalk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/Alfro6ull/openclaw-channel-dingtalk/plugin/calendar"
)

// ListCalendars fetches the user's calendars from the DingTalk calendar API.
func (c *Client) ListCalendars(ctx context.Context, userID string) ([]calendar.Calendar, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/v1.0/calendar/users/%s/calendars", url.PathEscape(userID))
	var result struct {
		Response []struct {
			ID        string `json:"id"`
			Summary   string `json:"summary"`
			IsPrimary bool   `json:"isPrimary"`
		} `json:"response"`
	}
	if err := c.getJSON(ctx, path, nil, token, &result); err != nil {
		return nil, errors.Wrapf(err, "list calendars for %s", userID)
	}

	calendars := make([]calendar.Calendar, 0, len(result.Response))
	for _, item := range result.Response {
		calendars = append(calendars, calendar.Calendar{
			ID:      item.ID,
			Name:    item.Summary,
			Primary: item.IsPrimary,
		})
	}
	return calendars, nil
}

// ListEvents fetches one page of events starting inside [from, to].
func (c *Client) ListEvents(ctx context.Context, userID, calendarID string, from, to int64, pageToken string) ([]calendar.Event, string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, "", err
	}

	path := fmt.Sprintf("/v1.0/calendar/users/%s/calendars/%s/events",
		url.PathEscape(userID), url.PathEscape(calendarID))
	query := url.Values{}
	query.Set("timeMin", time.Unix(from, 0).UTC().Format(time.RFC3339))
	query.Set("timeMax", time.Unix(to, 0).UTC().Format(time.RFC3339))
	query.Set("maxResults", "50")
	if pageToken != "" {
		query.Set("nextToken", pageToken)
	}

	var result struct {
		NextToken string `json:"nextToken"`
		Events    []struct {
			ID      string `json:"id"`
			Summary string `json:"summary"`
			Start   struct {
				Date     string `json:"date"`
				DateTime string `json:"dateTime"`
			} `json:"start"`
		} `json:"events"`
	}
	if err := c.getJSON(ctx, path, query, token, &result); err != nil {
		return nil, "", errors.Wrapf(err, "list events for %s", userID)
	}

	events := make([]calendar.Event, 0, len(result.Events))
	for _, item := range result.Events {
		ev := calendar.Event{ID: item.ID, Title: item.Summary}
		switch {
		case item.Start.DateTime != "":
			start, err := time.Parse(time.RFC3339, item.Start.DateTime)
			if err != nil {
				c.logger.Warn("skip event with unparseable start",
					"eventID", item.ID, "start", item.Start.DateTime)
				continue
			}
			ev.StartTs = start.Unix()
			ev.RawStart = item.Start.DateTime
		case item.Start.Date != "":
			ev.AllDay = true
			ev.RawStart = item.Start.Date
		default:
			continue
		}
		events = append(events, ev)
	}
	return events, result.NextToken, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, token string, out any) error {
	u := APIBaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-acs-dingtalk-access-token", token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("dingtalk api %s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
