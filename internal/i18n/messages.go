package i18n

// Message IDs used by the web interface.
const (
	MsgOK            = "ok"
	MsgRemoved       = "removed"
	MsgDeleted       = "deleted"
	MsgGroups        = "groups"
	MsgNewGroup      = "new_group"
	MsgEditGroup     = "edit_group"
	MsgDisplayName   = "display_name"
	MsgGroupName     = "group_name"
	MsgSave          = "save"
	MsgAdd           = "add"
	MsgRemove        = "remove"
	MsgUserMembers   = "user_members"
	MsgSystemMembers = "system_members"
	MsgHistory       = "history"
	MsgUser          = "user"
	MsgSystem        = "system"
	MsgAction        = "action"
	MsgField         = "field"
	MsgOldValue      = "old_value"
	MsgNewValue      = "new_value"
	MsgCreated       = "created"
	MsgPrevious      = "previous"
	MsgNext          = "next"
	MsgPage          = "page"
	MsgLogin         = "login"
	MsgLogout        = "logout"

	MsgRequired          = "required"
	MsgTooLong           = "too_long"
	MsgGroupNameTaken    = "group_name_taken"
	MsgUnknownUser       = "unknown_user"
	MsgUnknownSystem     = "unknown_system"
	MsgAlreadyMember     = "already_member"
	MsgMemberNotFound    = "member_not_found"
	MsgGroupNotFound     = "group_not_found"
	MsgNotFound          = "not_found"
	MsgBadRequest        = "bad_request"
	MsgUnauthorized      = "unauthorized"
	MsgInternalError     = "internal_error"
	MsgConfirmDeleteText = "confirm_delete"
)
