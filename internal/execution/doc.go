// Package execution runs admitted skills. Every call goes through the gate
// first; the activation must be operational, the user must have quota left
// and the empleaido must have energy. Results of critical skills are held as
// pending confirmations carrying a professional disclaimer until the user
// approves or rejects them.
package execution
