// Package config loads graft configuration from YAML or CUE files.
//
// Loading runs in fixed steps:
//  1. read the file and, depth first, the files its include: key names
//  2. deep-merge them (includes first), then any CLI includes
//  3. apply GRAFT_<SECTION>__<KEY> environment overrides
//  4. unify with the embedded #Config CUE schema, which fills defaults and
//     rejects unknown keys and wrongly typed values
//  5. expand {config.*} and {env.*} templates
//  6. decode strictly into Config and run the validator rules
//
// Every failure is a *Error.
package config
