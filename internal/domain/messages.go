package domain

// ItemTypeContent is the item type carried on publish commands and reports.
// It exists so future item kinds can share the same channel.
const ItemTypeContent = "content"

// PublishCommand asks the executor to attempt one publish of the referenced
// item. Commands carry a reference only; the executor resolves the live item
// from the store so late-arriving duplicates see current state.
type PublishCommand struct {
	ItemType string `json:"item_type"`
	ItemID   string `json:"item_id"`
}

// NewPublishCommand builds a command for a content item.
func NewPublishCommand(itemID string) PublishCommand {
	return PublishCommand{ItemType: ItemTypeContent, ItemID: itemID}
}

// Report describes the outcome of one executor invocation. Success reports
// carry the provider's post identifier; failure reports carry the error
// message and the retry count after the attempt.
type Report struct {
	ItemType   string `json:"item_type"`
	ItemID     string `json:"item_id"`
	ProviderID string `json:"provider_id,omitempty"`
	Error      string `json:"error,omitempty"`
	RetryCount int    `json:"retry_count,omitempty"`
}
