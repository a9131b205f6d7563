// Package bus implements a bounded in-process event bus for advisory
// notifications (analysis completions, detector alerts). Publishing
// never blocks: subscribers that fall behind lose events, and a
// bus-wide counter tracks the drops.
package bus
