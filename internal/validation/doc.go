// Package validation scores each Configuration section in isolation and
// aggregates the results into a FullValidationResult.
//
// Validators never panic and never return errors: every problem is reported
// as an entry in Errors (fatal to the section) or Warnings (advisory). A
// section with zero errors is valid even when it carries warnings. Only the
// required sections (Brand, Category Definition, Competitors, Demand
// Definition, Negative Scope) can block a configuration.
//
// Negative Scope fails closed: an empty exclusion set, or one with hard
// exclusion switched off, is a validation failure rather than a permissive
// default.
package validation
