package api

// Resource is the identity pair the service returns for created scenarios
// and markets.
type Resource struct {
	UUID        string `json:"uuid"`
	DisplayName string `json:"displayName"`
}

// Market is the state the service reports for a plan market.
type Market struct {
	UUID        string `json:"uuid"`
	DisplayName string `json:"displayName"`
	State       string `json:"state"`
	// RunDate and RunCompleteDate are server-side timestamps in ISO 8601
	// form with a numeric zone offset.
	RunDate          string `json:"runDate"`
	RunCompleteDate  string `json:"runCompleteDate"`
	UnplacedEntities bool   `json:"unplacedEntities"`
}

// Entity is a topology entity or group reference.
type Entity struct {
	UUID        string `json:"uuid"`
	DisplayName string `json:"displayName"`
	ClassName   string `json:"className"`
}

type versionInfo struct {
	Version string `json:"version"`
}
