// Package schema holds tool input schemas declared by providers,
// renders them into the model tool catalog and validates call arguments.
package schema
