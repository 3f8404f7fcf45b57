package kafka

// Topic namespace (spec §6): {namespace}.{identity}.{pfxs|peers|meta},
// {namespace}.members, {namespace}.globalmeta[.channel].

func PfxsTopic(namespace, identity string) string {
	return namespace + "." + identity + ".pfxs"
}

func PeersTopic(namespace, identity string) string {
	return namespace + "." + identity + ".peers"
}

func MetaTopic(namespace, identity string) string {
	return namespace + "." + identity + ".meta"
}

func MembersTopic(namespace string) string {
	return namespace + ".members"
}

// GlobalMetaTopic returns the global meta topic, optionally scoped to a
// channel (e.g. a collector group). channel == "" addresses the
// unscoped topic.
func GlobalMetaTopic(namespace, channel string) string {
	if channel == "" {
		return namespace + ".globalmeta"
	}
	return namespace + ".globalmeta." + channel
}
