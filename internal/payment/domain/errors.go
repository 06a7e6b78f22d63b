package domain

import "errors"

var (
	ErrProviderNotFound      = errors.New("payment_provider_not_found")
	ErrChannelUnsupported    = errors.New("payment_channel_unsupported")
	ErrInvalidConfig         = errors.New("invalid_payment_provider_config")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrSessionNotFound       = errors.New("payment_session_not_found")
	ErrSessionClosed         = errors.New("payment_session_closed")
	ErrChargeDeclined        = errors.New("charge_declined")
	ErrAmountMismatch        = errors.New("settlement_amount_mismatch")
)
