package irc

// Numeric replies, RFC 2812 plus the IRCv3 SASL set.
const (
	RPL_WELCOME  = "001"
	RPL_YOURHOST = "002"
	RPL_CREATED  = "003"
	RPL_MYINFO   = "004"

	RPL_AWAY        = "301"
	RPL_UNAWAY      = "305"
	RPL_NOWAWAY     = "306"
	RPL_WHOISUSER   = "311"
	RPL_WHOISSERVER = "312"
	RPL_ENDOFWHO    = "315"
	RPL_ENDOFWHOIS  = "318"
	RPL_LIST        = "322"
	RPL_LISTEND     = "323"
	RPL_NOTOPIC     = "331"
	RPL_TOPIC       = "332"
	RPL_INVITING    = "341"
	RPL_WHOREPLY    = "352"
	RPL_NAMREPLY    = "353"
	RPL_ENDOFNAMES  = "366"
	RPL_MOTD        = "372"
	RPL_MOTDSTART   = "375"
	RPL_ENDOFMOTD   = "376"

	ERR_NOSUCHNICK        = "401"
	ERR_NOSUCHCHANNEL     = "403"
	ERR_UNKNOWNCOMMAND    = "421"
	ERR_NOMOTD            = "422"
	ERR_NONICKNAMEGIVEN   = "431"
	ERR_ERRONEUSNICKNAME  = "432"
	ERR_NICKNAMEINUSE     = "433"
	ERR_NOTONCHANNEL      = "442"
	ERR_NOTREGISTERED     = "451"
	ERR_NEEDMOREPARAMS    = "461"
	ERR_ALREADYREGISTERED = "462"
	ERR_PASSWDMISMATCH    = "464"
	ERR_NOPRIVILEGES      = "481"
	ERR_CHANOPRIVSNEEDED  = "482"

	RPL_TRYAGAIN = "263"

	RPL_LOGGEDIN    = "900"
	RPL_SASLSUCCESS = "903"
	ERR_SASLFAIL    = "904"
)
