// Package remote is the typed client for the historian backend's HTTP+JSON
// query API (spec §4.5, §6): every operation is a single POST of a
// query/variables document to one endpoint URL, bearer-authenticated except
// for login. Field names mirror the backend's wire schema exactly so the
// request/response shapes can be grounded against it byte for byte.
package remote

// graphQLError is the error envelope the backend nests inside otherwise
// successful payloads. A populated error with Code "0" is not a failure
// (spec §9, "Error objects in success responses") — see isSuccess.
type graphQLError struct {
	Code        *string `json:"code,omitempty"`
	Description *string `json:"description,omitempty"`
	Message     *string `json:"message,omitempty"`
}

// isSuccess reports whether a nested error object represents success. A nil
// object is success. A non-nil object is success only when Code == "0";
// absence of a code defaults to failure, matching the backend's own
// "default to failure if no code" convention.
func isSuccess(e *graphQLError) bool {
	if e == nil {
		return true
	}
	if e.Code == nil {
		return false
	}
	return *e.Code == "0"
}

func (e *graphQLError) text() string {
	if e == nil {
		return "unknown error"
	}
	if e.Description != nil && *e.Description != "" {
		return *e.Description
	}
	if e.Message != nil && *e.Message != "" {
		return *e.Message
	}
	return "unknown error"
}

// topLevelError is one entry of a GraphQL-style top-level "errors" array,
// distinct from the nested per-field error object above.
type topLevelError struct {
	Message     string `json:"message"`
	Description string `json:"description"`
}

type loginVariables struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Query     string         `json:"query"`
	Variables loginVariables `json:"variables"`
}

type user struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	FullName *string `json:"fullName"`
	Language *string `json:"language"`
}

type sessionPayload struct {
	Token   string        `json:"token"`
	Expires string        `json:"expires"`
	User    *user         `json:"user"`
	Error   *graphQLError `json:"error"`
}

type loginData struct {
	Login sessionPayload `json:"login"`
}

type loginResponse struct {
	Data   *loginData      `json:"data"`
	Errors []topLevelError `json:"errors"`
}

type extendSessionData struct {
	ExtendSession sessionPayload `json:"extendSession"`
}

type extendSessionResponse struct {
	Data   *extendSessionData `json:"data"`
	Errors []topLevelError    `json:"errors"`
}

type tagValuesVariables struct {
	Names      []string `json:"names"`
	DirectRead bool     `json:"directRead"`
}

type tagValuesRequest struct {
	Query     string             `json:"query"`
	Variables tagValuesVariables `json:"variables"`
}

// Quality carries the historian's point-quality annotation.
type Quality struct {
	Quality string `json:"quality"`
}

// Value is a single historian reading: an opaque JSON scalar, an ISO-8601
// timestamp, and an optional quality flag.
type Value struct {
	Value     any      `json:"value"`
	Timestamp string   `json:"timestamp"`
	Quality   *Quality `json:"quality"`
}

// TagValueResult is one row of a tagValues response.
type TagValueResult struct {
	Name  string        `json:"name"`
	Value *Value        `json:"value"`
	Error *graphQLError `json:"error"`
}

type tagValuesData struct {
	TagValues []TagValueResult `json:"tagValues"`
}

type tagValuesResponse struct {
	Data   *tagValuesData  `json:"data"`
	Errors []topLevelError `json:"errors"`
}

type loggedTagValuesVariables struct {
	Names             []string `json:"names"`
	StartTime         *string  `json:"startTime"`
	EndTime           *string  `json:"endTime"`
	MaxNumberOfValues *int     `json:"maxNumberOfValues"`
	SortingMode       *string  `json:"sortingMode"`
}

type loggedTagValuesRequest struct {
	Query     string                   `json:"query"`
	Variables loggedTagValuesVariables `json:"variables"`
}

// LoggedValue pairs a historical Value with the backend's point-quality flags.
type LoggedValue struct {
	Value Value    `json:"value"`
	Flags []string `json:"flags"`
}

// LoggedTagValuesResult is one logging tag's full result set.
type LoggedTagValuesResult struct {
	LoggingTagName string        `json:"loggingTagName"`
	Values         []LoggedValue `json:"values"`
	Error          *graphQLError `json:"error"`
}

type loggedTagValuesData struct {
	LoggedTagValues []LoggedTagValuesResult `json:"loggedTagValues"`
}

type loggedTagValuesResponse struct {
	Data   *loggedTagValuesData `json:"data"`
	Errors []topLevelError      `json:"errors"`
}

type activeAlarmsVariables struct {
	SystemNames    []string `json:"systemNames"`
	FilterString   string   `json:"filterString"`
	FilterLanguage string   `json:"filterLanguage"`
	Languages      []string `json:"languages"`
}

type activeAlarmsRequest struct {
	Query     string                 `json:"query"`
	Variables activeAlarmsVariables  `json:"variables"`
}

// Alarm is the common shape shared by active and logged alarm rows; Duration
// is only ever populated on a logged-alarm result.
type Alarm struct {
	Name                string   `json:"name"`
	InstanceID          int32    `json:"instanceID"`
	AlarmGroupID        *int32   `json:"alarmGroupID"`
	RaiseTime           string   `json:"raiseTime"`
	AcknowledgmentTime  *string  `json:"acknowledgmentTime"`
	ClearTime           *string  `json:"clearTime"`
	ResetTime           *string  `json:"resetTime"`
	ModificationTime    string   `json:"modificationTime"`
	State               string   `json:"state"`
	Priority            *int32   `json:"priority"`
	EventText           []string `json:"eventText"`
	InfoText            []string `json:"infoText"`
	Origin              *string  `json:"origin"`
	Area                *string  `json:"area"`
	Value               any      `json:"value"`
	HostName            *string  `json:"hostName"`
	UserName            *string  `json:"userName"`
	Duration            *string  `json:"duration,omitempty"`
}

type activeAlarmsData struct {
	ActiveAlarms []Alarm `json:"activeAlarms"`
}

type activeAlarmsResponse struct {
	Data   *activeAlarmsData `json:"data"`
	Errors []topLevelError   `json:"errors"`
}

type loggedAlarmsVariables struct {
	SystemNames        []string `json:"systemNames"`
	FilterString       *string  `json:"filterString"`
	FilterLanguage     *string  `json:"filterLanguage"`
	Languages          []string `json:"languages"`
	StartTime          *string  `json:"startTime"`
	EndTime            *string  `json:"endTime"`
	MaxNumberOfResults *int     `json:"maxNumberOfResults"`
}

type loggedAlarmsRequest struct {
	Query     string                 `json:"query"`
	Variables loggedAlarmsVariables  `json:"variables"`
}

type loggedAlarmsData struct {
	LoggedAlarms []Alarm `json:"loggedAlarms"`
}

type loggedAlarmsResponse struct {
	Data   *loggedAlarmsData `json:"data"`
	Errors []topLevelError   `json:"errors"`
}

type browseVariables struct {
	NameFilters       []string `json:"nameFilters"`
	ObjectTypeFilters []string `json:"objectTypeFilters"`
	BaseTypeFilters   []string `json:"baseTypeFilters"`
	Language          string   `json:"language"`
}

type browseRequest struct {
	Query     string          `json:"query"`
	Variables browseVariables `json:"variables"`
}

// BrowseResult is one tag or logging-tag entry returned by the backend's
// metadata browse operation.
type BrowseResult struct {
	Name        string  `json:"name"`
	DisplayName *string `json:"displayName"`
	ObjectType  *string `json:"objectType"`
	DataType    *string `json:"dataType"`
}

type browseData struct {
	Browse []BrowseResult `json:"browse"`
}

type browseResponse struct {
	Data   *browseData     `json:"data"`
	Errors []topLevelError `json:"errors"`
}
