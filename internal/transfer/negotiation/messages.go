package negotiation

// Message template keys sent through the Notifier.
const (
	KeyUnknownPlayer      = "unknown-player"
	KeyPlayerOffline      = "player-offline"
	KeyNoSelf             = "transfer-no-self"
	KeyNoPermission       = "no-permission"
	KeyNoPendingOperation = "transfer-no-pending-operation"
	KeySent               = "transfer-sent"
	KeyRequest            = "transfer-request"
	KeyAsk                = "transfer-ask"
	KeyRejectedFromSide   = "transfer-rejected-fromside"
	KeyRejectedToSide     = "transfer-rejected-toside"
	KeyAcceptedFromSide   = "transfer-accepted-fromside"
	KeyAcceptedToSide     = "transfer-accepted-toside"
	KeySuccessOther       = "command.transfer-success-other"
)

const DefaultOverrideCapability = "shop.transfer.other"
