// Package ucr defines the User Context Record: the typed configuration a brand
// maintains to describe its market context and guardrails.
//
// A Configuration is composed of eight sections. Raw documents enter the
// system through ParseConfiguration, which rejects documents that are missing a
// section or carry structurally illegal values (unknown enum values, exclusion
// entries without a value). Completeness of a section is a separate concern and
// is scored by the validation package.
package ucr
