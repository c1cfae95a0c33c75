// Package env builds the environment suite commands run in.
//
// It provides functionality for:
//   - Loading .env files
//   - Merging process, file and suite variables into a command environment
//   - Interpolating {{variable}} placeholders, including values recorded from
//     earlier tests in the same run
package env
