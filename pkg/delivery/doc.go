// Package delivery batches downloaded videos and hands them to an
// external destination through the Sender interface. Videos flow out in
// download-completion order, in batches of a configured size, with a
// final partial batch when the job finishes.
package delivery
