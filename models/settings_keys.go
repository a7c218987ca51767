package models

// ProfilesKey holds the ordered profile set as a JSON object.
const ProfilesKey = "profiles"

// CurrentProfileKey holds the name of the active profile as a JSON string.
const CurrentProfileKey = "currentProfile"

// LegacyRulesKey holds the pre-profile flat rule list. It is the migration source and the
// live interceptor's rule source.
const LegacyRulesKey = "headerRules"
