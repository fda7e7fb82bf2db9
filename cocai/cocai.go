// Package cocai holds application-wide defaults shared by the session
// engine, the authoring tools, and the command-line entry points.
package cocai

const (
	DefaultAppName    = "cocai"
	DefaultConfigPath = "/etc/cocai"

	// Data layout mirrors the campaign/save split the engine expects:
	// authored scenarios live under campaigns/, per-campaign saves and
	// memory files under saves/, the recall database under recall/.
	DefaultDataDir     = "data"
	DefaultCampaignDir = "data/campaigns"
	DefaultSaveDir     = "data/saves"
	DefaultRecallDB    = "data/recall/recall.db"
)
