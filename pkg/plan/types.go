package plan

import "fmt"

// SettingTag identifies an abstract setting kind in the registry. Tags form a
// closed set; rendering an unrecognized tag is a compilation error rather
// than a silent no-op.
type SettingTag string

const (
	// TagName carries the scenario display name.
	TagName SettingTag = "name"
	// TagType carries the plan scenario type.
	TagType SettingTag = "type"
	// TagScope carries the list of entity or group UUIDs the plan applies to.
	TagScope SettingTag = "scope"
	// TagProjection carries the union of requested projection-day offsets.
	TagProjection SettingTag = "projection"
	// TagDesiredState carries the desired-state center/diameter pair.
	TagDesiredState SettingTag = "desiredstate"
	// TagHistBaseline loads used and peak utilization from a historical date.
	TagHistBaseline SettingTag = "histbaseline"
	// TagPeakBaseline loads a peak baseline for selected clusters.
	TagPeakBaseline SettingTag = "peakbaseline"
	// TagAddHistorical adds workload based on the previous month.
	TagAddHistorical SettingTag = "addhist"
	// TagIncludeReserved includes reserved workloads in the plan.
	TagIncludeReserved SettingTag = "includereserved"
	// TagMaxUtilization caps commodity utilization for selected targets.
	TagMaxUtilization SettingTag = "maxutil"
	// TagUtilization shifts current load for selected targets.
	TagUtilization SettingTag = "curutil"
	// TagConstraint removes placement constraints for selected targets.
	TagConstraint SettingTag = "constraint"
	// TagOSMigration configures OS mapping for cloud migration plans.
	TagOSMigration SettingTag = "osmigration"
	// TagRelievePressure migrates workload from hot to cold clusters.
	TagRelievePressure SettingTag = "relievepressure"
)

// AutomationSetting is a toggle controlling whether the analysis may take a
// class of action during simulation.
type AutomationSetting string

const (
	ProvisionStorage AutomationSetting = "provisionDS"
	ProvisionHost    AutomationSetting = "provisionPM"
	Resize           AutomationSetting = "resize"
	SuspendStorage   AutomationSetting = "suspendDS"
	SuspendHost      AutomationSetting = "suspendPM"

	// UtilTarget is the desired-state center (efficiency).
	UtilTarget AutomationSetting = "utilTarget"
	// TargetBand is the desired-state diameter (narrowness).
	TargetBand AutomationSetting = "targetBand"
)

// tag returns the registry tag automation toggles are stored under.
func (a AutomationSetting) tag() SettingTag {
	return SettingTag("automation." + string(a))
}

// EntityAction is a workload change applied by a plan.
type EntityAction string

const (
	ActionAdd     EntityAction = "add"
	ActionMigrate EntityAction = "migrate"
	ActionRemove  EntityAction = "remove"
	ActionReplace EntityAction = "replace"
)

func (e EntityAction) tag() SettingTag {
	return SettingTag("entity." + string(e))
}

// PlanType selects the scenario type submitted to the server.
type PlanType string

const (
	AddWorkload         PlanType = "ADD_WORKLOAD"
	AlleviatePressure   PlanType = "ALLEVIATE_PRESSURE"
	CloudMigration      PlanType = "CLOUD_MIGRATION"
	Custom              PlanType = "CUSTOM"
	DecommissionHost    PlanType = "DECOMMISSION_HOST"
	OptimizeOnprem      PlanType = "OPTIMIZE_ONPREM"
	Projection          PlanType = "PROJECTION"
	ReconfigureHardware PlanType = "RECONFIGURE_HARDWARE"
	WorkloadMigration   PlanType = "WORKLOAD_MIGRATION"
)

// MarketState is the remote market lifecycle state as reported by the server.
type MarketState string

const (
	StateCopying      MarketState = "COPYING"
	StateCreated      MarketState = "CREATED"
	StateDeleting     MarketState = "DELETING"
	StateReadyToStart MarketState = "READY_TO_START"
	StateRunning      MarketState = "RUNNING"
	StateStopped      MarketState = "STOPPED"
	StateSucceeded    MarketState = "SUCCEEDED"
	StateUserStopped  MarketState = "USER_STOPPED"
)

var marketStates = map[string]MarketState{
	string(StateCopying):      StateCopying,
	string(StateCreated):      StateCreated,
	string(StateDeleting):     StateDeleting,
	string(StateReadyToStart): StateReadyToStart,
	string(StateRunning):      StateRunning,
	string(StateStopped):      StateStopped,
	string(StateSucceeded):    StateSucceeded,
	string(StateUserStopped):  StateUserStopped,
}

// ParseMarketState maps a server-reported state string to a MarketState.
func ParseMarketState(s string) (MarketState, error) {
	if st, ok := marketStates[s]; ok {
		return st, nil
	}
	return "", fmt.Errorf("unknown market state %q", s)
}

// terminal reports whether st ends the polling loop.
func (st MarketState) terminal() bool {
	switch st {
	case StateSucceeded, StateStopped, StateUserStopped:
		return true
	}
	return false
}

// ConstraintCommodity identifies a removable placement constraint.
type ConstraintCommodity string

const (
	ClusterCommodity        ConstraintCommodity = "ClusterCommodity"
	NetworkCommodity        ConstraintCommodity = "NetworkCommodity"
	StorageClusterCommodity ConstraintCommodity = "StorageClusterCommodity"
	DataCenterCommodity     ConstraintCommodity = "DataCenterCommodity"
)

// CloudOS identifies an operating system in cloud migration profiles.
type CloudOS string

const (
	OSLinux   CloudOS = "LINUX"
	OSRHEL    CloudOS = "RHEL"
	OSSLES    CloudOS = "SLES"
	OSWindows CloudOS = "WINDOWS"
)

// targetSetting is the osmigration setting uuid selecting the target OS for
// a given source OS.
func (o CloudOS) targetSetting() string {
	switch o {
	case OSLinux:
		return "linuxTargetOs"
	case OSRHEL:
		return "rhelTargetOs"
	case OSSLES:
		return "slesTargetOs"
	case OSWindows:
		return "windowsTargetOs"
	}
	return ""
}

// licenseSetting is the osmigration setting uuid controlling BYOL licensing
// for a given source OS.
func (o CloudOS) licenseSetting() string {
	switch o {
	case OSLinux:
		return "linuxByol"
	case OSRHEL:
		return "rhelByol"
	case OSSLES:
		return "slesByol"
	case OSWindows:
		return "windowsByol"
	}
	return ""
}
