/*
Package results persists packed translation results in two tiers.

The fast tier is a single JSON blob under results:{task_id} in the store;
it serves all API reads and is what a task's COMPLETED transition depends
on. The durable tier is a timestamped export file

	task_{id}_{YYYYMMDD_HHMMSS}.json

under the configured results directory, holding {task_id, exported_at, data}.
Reads fall back to the newest export file when the fast tier is empty, so
results survive a store flush. The janitor deletes only the fast tier;
export files stay on disk for offline audit.

Lookup resolves one piece of content from a packed structure for the story
endpoint: the source language carries TEXT (reference) and AUDIO (transcript),
each target language carries TRANSLATION.
*/
package results
