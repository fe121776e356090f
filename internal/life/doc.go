// Package life tracks how an activated empleaido grows with use: experience
// and level go up with completed work, trust drifts with successes and errors,
// and energy is spent by executions and recovered while idle.
package life
