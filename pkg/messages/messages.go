package messages

// User facing reply texts shared by the interaction handlers.
const (
	// ErrUserErrorProcessing is the generic reply when an external dependency fails.
	ErrUserErrorProcessing = "An error occurred while processing your request. Please try again later."

	// ErrUserNoPermission is the reply when the user lacks a permission or role.
	ErrUserNoPermission = "You do not have permission to do that."

	// ErrUserNotTicket is the reply when a ticket action is used outside a ticket channel.
	ErrUserNotTicket = "This is not an active ticket channel."

	// ErrUserTicketsDisabled is the reply when the ticket system is turned off.
	ErrUserTicketsDisabled = "The ticket system is not enabled on this server."

	// ErrUserTicketLimit is the reply when the user already has the maximum number of tickets.
	ErrUserTicketLimit = "You already have the maximum number of open tickets (%d)."

	// ErrUserAlreadyClaimed is the reply when another member holds the claim.
	ErrUserAlreadyClaimed = "This ticket is already claimed by <@%s>."

	// ErrUserNotClaimant is the reply when someone other than the claimant unclaims.
	ErrUserNotClaimant = "Only the member who claimed this ticket can unclaim it."

	// ErrUserTargetNotFound is the reply when a user reference cannot be resolved.
	ErrUserTargetNotFound = "I could not find that user."

	// ErrUserAlreadyAdded is the reply when the user can already see the ticket.
	ErrUserAlreadyAdded = "<@%s> already has access to this ticket."

	// ErrUserUnknownCommand is the reply when a prefix command is not registered.
	ErrUserUnknownCommand = "Unknown command. Use `%shelp` to see the available commands."

	// ErrUserCategoryMissing is the reply when the configured ticket category was deleted.
	ErrUserCategoryMissing = "The ticket category no longer exists. Please ask an administrator to update the ticket settings."

	// ErrUserCooldown is the reply when a member sends commands too quickly.
	ErrUserCooldown = "You are using commands too quickly. Please wait a moment."
)
