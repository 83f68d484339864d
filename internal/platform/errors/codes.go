// Package errors provides structured error handling with machine-readable codes.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Resource pool errors
	CodePoolNegativeAmount Code = "POOL_NEGATIVE_AMOUNT"
	CodePoolUnknownField   Code = "POOL_UNKNOWN_FIELD"

	// Ability errors
	CodeAbilityEmptyID              Code = "ABILITY_EMPTY_ID"
	CodeAbilityNotQueueable         Code = "ABILITY_NOT_QUEUEABLE"
	CodeAbilityInsufficientResource Code = "ABILITY_INSUFFICIENT_RESOURCE"

	// Domain expansion errors
	CodeDomainAlreadyActive      Code = "DOMAIN_ALREADY_ACTIVE"
	CodeDomainNotActive          Code = "DOMAIN_NOT_ACTIVE"
	CodeDomainInvalidKind        Code = "DOMAIN_INVALID_KIND"
	CodeDomainLevelTooLow        Code = "DOMAIN_LEVEL_TOO_LOW"
	CodeDomainInsufficientEnergy Code = "DOMAIN_INSUFFICIENT_ENERGY"

	// Sheet errors
	CodeSheetInvalidLevel Code = "SHEET_INVALID_LEVEL"

	// Roster errors
	CodeRosterEmptyCampaignID     Code = "ROSTER_EMPTY_CAMPAIGN_ID"
	CodeRosterNotActive           Code = "ROSTER_NOT_ACTIVE"
	CodeRosterAlreadyActive       Code = "ROSTER_ALREADY_ACTIVE"
	CodeRosterInvalidParticipant  Code = "ROSTER_INVALID_PARTICIPANT"
	CodeRosterEmptyStartedBy      Code = "ROSTER_EMPTY_STARTED_BY"
	CodeRosterParticipantNotFound Code = "ROSTER_PARTICIPANT_NOT_FOUND"

	// Session errors
	CodeSessionNotFound         Code = "SESSION_NOT_FOUND"
	CodeSessionEmptyUserID      Code = "SESSION_EMPTY_USER_ID"
	CodeSessionEmptyCharacterID Code = "SESSION_EMPTY_CHARACTER_ID"

	// Round advancement errors
	CodeRoundNotGM        Code = "ROUND_NOT_GM"
	CodeRoundCommitFailed Code = "ROUND_COMMIT_FAILED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, bad input
	case CodePoolNegativeAmount,
		CodePoolUnknownField,
		CodeAbilityEmptyID,
		CodeAbilityNotQueueable,
		CodeDomainInvalidKind,
		CodeSheetInvalidLevel,
		CodeRosterEmptyCampaignID,
		CodeRosterInvalidParticipant,
		CodeRosterEmptyStartedBy,
		CodeSessionEmptyUserID,
		CodeSessionEmptyCharacterID:
		return http.StatusBadRequest

	// Conflict - state doesn't allow operation
	case CodeAbilityInsufficientResource,
		CodeDomainAlreadyActive,
		CodeDomainNotActive,
		CodeDomainLevelTooLow,
		CodeDomainInsufficientEnergy,
		CodeRosterNotActive,
		CodeRosterAlreadyActive:
		return http.StatusConflict

	// Forbidden - caller lacks authority
	case CodeRoundNotGM:
		return http.StatusForbidden

	// Not found
	case CodeNotFound,
		CodeSessionNotFound,
		CodeRosterParticipantNotFound:
		return http.StatusNotFound

	case CodeRoundCommitFailed:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}
