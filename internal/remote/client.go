package remote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	loginQuery = `
		mutation Login($username: String!, $password: String!) {
			login(username: $username, password: $password) {
				token
				expires
				user { id name fullName language }
				error { code description message }
			}
		}`

	extendSessionQuery = `
		mutation ExtendSession {
			extendSession {
				token
				expires
				error { code description message }
			}
		}`

	tagValuesQuery = `
		query TagValues($names: [String!]!, $directRead: Boolean!) {
			tagValues(names: $names, directRead: $directRead) {
				name
				value { value timestamp quality { quality } }
				error { code description message }
			}
		}`

	loggedTagValuesQuery = `
		query LoggedTagValues($names: [String!]!, $startTime: Timestamp, $endTime: Timestamp, $maxNumberOfValues: Int, $sortingMode: LoggedTagValuesSortingModeEnum) {
			loggedTagValues(names: $names, startTime: $startTime, endTime: $endTime, maxNumberOfValues: $maxNumberOfValues, sortingMode: $sortingMode) {
				loggingTagName
				values { value { value timestamp quality { quality } } flags }
				error { code description message }
			}
		}`

	activeAlarmsQuery = `
		query ActiveAlarms($systemNames: [String!], $filterString: String!, $filterLanguage: String!, $languages: [String!]) {
			activeAlarms(systemNames: $systemNames, filterString: $filterString, filterLanguage: $filterLanguage, languages: $languages) {
				name instanceID alarmGroupID raiseTime acknowledgmentTime clearTime resetTime modificationTime
				state priority eventText infoText origin area value hostName userName
			}
		}`

	loggedAlarmsQuery = `
		query LoggedAlarms($systemNames: [String], $filterString: String, $filterLanguage: String, $languages: [String], $startTime: Timestamp, $endTime: Timestamp, $maxNumberOfResults: Int) {
			loggedAlarms(systemNames: $systemNames, filterString: $filterString, filterLanguage: $filterLanguage, languages: $languages, startTime: $startTime, endTime: $endTime, maxNumberOfResults: $maxNumberOfResults) {
				name instanceID alarmGroupID raiseTime acknowledgmentTime clearTime resetTime modificationTime
				state priority eventText infoText origin area value hostName userName duration
			}
		}`

	browseQuery = `
		query Browse($nameFilters: [String!]!, $objectTypeFilters: [ObjectTypesEnum!]!, $baseTypeFilters: [String!]!, $language: String!) {
			browse(nameFilters: $nameFilters, objectTypeFilters: $objectTypeFilters, baseTypeFilters: $baseTypeFilters, language: $language) {
				name displayName objectType dataType
			}
		}`
)

// Client is a bearer-authenticated client for the historian backend's single
// HTTP+JSON query endpoint (spec §4.5). Safe for concurrent use once the
// token is set; SetToken itself is not synchronized against concurrent
// requests and is only ever called from the session manager's single-writer
// extension path.
type Client struct {
	http  *resty.Client
	url   string
	token string
}

// NewClient builds a Client targeting the backend's query endpoint URL.
func NewClient(baseURL string) *Client {
	return &Client{
		http: resty.New().SetTimeout(30 * time.Second),
		url:  baseURL,
	}
}

// SetToken installs the bearer token used by every subsequent request except
// Login itself.
func (c *Client) SetToken(token string) {
	c.token = token
}

func (c *Client) request(ctx context.Context) *resty.Request {
	r := c.http.R().SetContext(ctx).SetHeader("Content-Type", "application/json")
	if c.token != "" {
		r.SetHeader("Authorization", "Bearer "+c.token)
	}
	return r
}

func joinErrors(errs []topLevelError) string {
	if len(errs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		msg := e.Message
		if msg == "" {
			msg = e.Description
		}
		if msg == "" {
			msg = "unknown error"
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, ", ")
}

func parseExpiry(raw string) time.Time {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	// Fall back to a short grace window rather than failing the whole call
	// over an unparsable timestamp (§9, defensive default).
	return time.Now().Add(5 * time.Minute)
}

// Login authenticates against the backend and returns the issued bearer
// token and its expiry (spec §4.3, §4.8).
func (c *Client) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	body := loginRequest{Query: loginQuery, Variables: loginVariables{Username: username, Password: password}}
	var out loginResponse
	resp, err := c.request(ctx).SetBody(body).SetResult(&out).Post(c.url)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("remote: login request: %w", err)
	}
	if resp.IsError() {
		return "", time.Time{}, fmt.Errorf("remote: login failed with status %s", resp.Status())
	}
	if msg := joinErrors(out.Errors); msg != "" {
		return "", time.Time{}, fmt.Errorf("remote: login failed: %s", msg)
	}
	if out.Data == nil {
		return "", time.Time{}, fmt.Errorf("remote: login response had no data")
	}
	sess := out.Data.Login
	if !isSuccess(sess.Error) {
		return "", time.Time{}, fmt.Errorf("remote: login rejected: %s", sess.Error.text())
	}
	return sess.Token, parseExpiry(sess.Expires), nil
}

// ExtendSession renews the caller's current bearer token before it expires
// (spec §4.8).
func (c *Client) ExtendSession(ctx context.Context) (string, time.Time, error) {
	body := map[string]string{"query": extendSessionQuery}
	var out extendSessionResponse
	resp, err := c.request(ctx).SetBody(body).SetResult(&out).Post(c.url)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("remote: extend session request: %w", err)
	}
	if resp.IsError() {
		return "", time.Time{}, fmt.Errorf("remote: extend session failed with status %s", resp.Status())
	}
	if msg := joinErrors(out.Errors); msg != "" {
		return "", time.Time{}, fmt.Errorf("remote: extend session failed: %s", msg)
	}
	if out.Data == nil {
		return "", time.Time{}, fmt.Errorf("remote: extend session response had no data")
	}
	sess := out.Data.ExtendSession
	if !isSuccess(sess.Error) {
		return "", time.Time{}, fmt.Errorf("remote: extend session rejected: %s", sess.Error.text())
	}
	return sess.Token, parseExpiry(sess.Expires), nil
}

// TagValues fetches the current value of each named tag (spec §4.5, TagValues table).
func (c *Client) TagValues(ctx context.Context, names []string, directRead bool) ([]TagValueResult, error) {
	body := tagValuesRequest{Query: tagValuesQuery, Variables: tagValuesVariables{Names: names, DirectRead: directRead}}
	var out tagValuesResponse
	resp, err := c.request(ctx).SetBody(body).SetResult(&out).Post(c.url)
	if err != nil {
		return nil, fmt.Errorf("remote: tagValues request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("remote: tagValues failed with status %s", resp.Status())
	}
	if out.Data == nil {
		return nil, nil
	}
	return out.Data.TagValues, nil
}

// LoggedTagValues fetches historical values for each named logging tag
// between startTime and endTime (spec §4.5, LoggedTagValues table).
func (c *Client) LoggedTagValues(ctx context.Context, names []string, startTime, endTime *string, maxValues *int, sortingMode *string) ([]LoggedTagValuesResult, error) {
	body := loggedTagValuesRequest{
		Query: loggedTagValuesQuery,
		Variables: loggedTagValuesVariables{
			Names:             names,
			StartTime:         startTime,
			EndTime:           endTime,
			MaxNumberOfValues: maxValues,
			SortingMode:       sortingMode,
		},
	}
	var out loggedTagValuesResponse
	resp, err := c.request(ctx).SetBody(body).SetResult(&out).Post(c.url)
	if err != nil {
		return nil, fmt.Errorf("remote: loggedTagValues request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("remote: loggedTagValues failed with status %s", resp.Status())
	}
	if msg := joinErrors(out.Errors); msg != "" {
		return nil, fmt.Errorf("remote: loggedTagValues query errors: %s", msg)
	}
	if out.Data == nil {
		return nil, nil
	}
	return out.Data.LoggedTagValues, nil
}

// ActiveAlarms fetches currently-active alarms, optionally restricted to a
// set of system names and a browse-style filter string (spec §4.5, ActiveAlarms table).
func (c *Client) ActiveAlarms(ctx context.Context, systemNames []string, filterString, filterLanguage string, languages []string) ([]Alarm, error) {
	if filterLanguage == "" {
		filterLanguage = "en-US"
	}
	if len(languages) == 0 {
		languages = []string{filterLanguage}
	}
	body := activeAlarmsRequest{
		Query: activeAlarmsQuery,
		Variables: activeAlarmsVariables{
			SystemNames:    systemNames,
			FilterString:   filterString,
			FilterLanguage: filterLanguage,
			Languages:      languages,
		},
	}
	var out activeAlarmsResponse
	resp, err := c.request(ctx).SetBody(body).SetResult(&out).Post(c.url)
	if err != nil {
		return nil, fmt.Errorf("remote: activeAlarms request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("remote: activeAlarms failed with status %s", resp.Status())
	}
	if out.Data == nil {
		return nil, nil
	}
	return out.Data.ActiveAlarms, nil
}

// LoggedAlarms fetches historical alarm occurrences (spec §4.5, LoggedAlarms table).
func (c *Client) LoggedAlarms(ctx context.Context, systemNames []string, filterString, filterLanguage string, startTime, endTime *string, maxResults *int) ([]Alarm, error) {
	var filterStringPtr, filterLanguagePtr *string
	if filterString != "" {
		filterStringPtr = &filterString
	}
	if filterLanguage != "" {
		filterLanguagePtr = &filterLanguage
	}
	body := loggedAlarmsRequest{
		Query: loggedAlarmsQuery,
		Variables: loggedAlarmsVariables{
			SystemNames:        systemNames,
			FilterString:       filterStringPtr,
			FilterLanguage:     filterLanguagePtr,
			StartTime:          startTime,
			EndTime:            endTime,
			MaxNumberOfResults: maxResults,
		},
	}
	var out loggedAlarmsResponse
	resp, err := c.request(ctx).SetBody(body).SetResult(&out).Post(c.url)
	if err != nil {
		return nil, fmt.Errorf("remote: loggedAlarms request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("remote: loggedAlarms failed with status %s", resp.Status())
	}
	if out.Data == nil {
		return nil, nil
	}
	return out.Data.LoggedAlarms, nil
}

// Browse resolves tag/logging-tag name filters (possibly containing browse
// wildcards) to metadata rows (spec §4.5, TagList table / §8 LIKE translation).
func (c *Client) Browse(ctx context.Context, nameFilters, objectTypeFilters, baseTypeFilters []string, language string) ([]BrowseResult, error) {
	if language == "" {
		language = "en-US"
	}
	if objectTypeFilters == nil {
		objectTypeFilters = []string{}
	}
	if baseTypeFilters == nil {
		baseTypeFilters = []string{}
	}
	body := browseRequest{
		Query: browseQuery,
		Variables: browseVariables{
			NameFilters:       nameFilters,
			ObjectTypeFilters: objectTypeFilters,
			BaseTypeFilters:   baseTypeFilters,
			Language:          language,
		},
	}
	var out browseResponse
	resp, err := c.request(ctx).SetBody(body).SetResult(&out).Post(c.url)
	if err != nil {
		return nil, fmt.Errorf("remote: browse request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("remote: browse failed with status %s", resp.Status())
	}
	if out.Data == nil {
		return nil, nil
	}
	return out.Data.Browse, nil
}
