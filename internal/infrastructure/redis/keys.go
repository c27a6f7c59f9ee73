package redis

// All keys share the "onboard:" prefix.
const keyPrefix = "onboard:"

// progressKey holds the JSON record of an owner: onboard:progress:{owner}
func progressKey(owner string) string { return keyPrefix + "progress:" + owner }

// archiveKey is the List of archived records, newest at the head:
// onboard:archive:{owner}
func archiveKey(owner string) string { return keyPrefix + "archive:" + owner }

// stepChangedChannel is the pub/sub channel for StepChangedEvent.
const stepChangedChannel = keyPrefix + "events:step_changed"
