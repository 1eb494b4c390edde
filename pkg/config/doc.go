/*
Package config resolves Fable's runtime settings.

Settings layer in a fixed order: struct-tag defaults, then environment
variables (the primary deployment interface, parsed with envconfig), then
an optional YAML file passed via --config. The file layer is explicit
operator input and therefore wins over the environment.

Environment names follow the deployment contract directly: API_HOST,
API_PORT, STORE_HOST, STORE_PORT, WORKER_MAX_THREADS, WORKER_TIMEOUT,
TASK_RETRY_LIMIT, UPLOAD_DIR, RESULT_DIR, SUPPORTED_LANGUAGES, and so on.
List values (SUPPORTED_LANGUAGES, ALLOWED_AUDIO_FORMATS) are comma
separated. Interval settings are plain integers in the unit the contract
names (seconds for worker and task timing, hours for retention,
milliseconds for consumer idle); typed accessors expose them as
time.Duration so the rest of the code never multiplies units by hand.

Load validates the result before returning it; a process refusing to
start on a malformed configuration beats one misbehaving an hour later.
*/
package config
