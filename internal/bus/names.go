package bus

// Well-known service names.
const (
	ServiceJack   = "org.jackaudio.service"
	ServiceLadish = "org.ladish"
)

// Well-known object paths.
const (
	ObjectJackController = "/org/jackaudio/Controller"
	ObjectControl        = "/org/ladish/Control"
	ObjectStudio         = "/org/ladish/Studio"
)

// Interface names.
const (
	IfacePatchbay      = "org.jackaudio.JackPatchbay"
	IfaceGraphManager  = "org.ladish.GraphManager"
	IfaceGraphDict     = "org.ladish.GraphDict"
	IfaceAppSupervisor = "org.ladish.AppSupervisor"
	IfaceControl       = "org.ladish.Control"
	IfaceStudio        = "org.ladish.Studio"
	IfaceRoom          = "org.ladish.Room"
)

// Method addresses one remote member.
type Method struct {
	Service   string
	Object    string
	Interface string
	Member    string
}

func (m Method) String() string {
	return m.Interface + "." + m.Member
}

// Object addresses one object exposed by a service.
type Object struct {
	Service string
	Path    string
}

// Method returns the address of member on interface iface of this object.
func (o Object) Method(iface, member string) Method {
	return Method{
		Service:   o.Service,
		Object:    o.Path,
		Interface: iface,
		Member:    member,
	}
}
